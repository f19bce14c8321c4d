package banner

import (
	"fmt"

	"chatterly/pkg/config"
)

const banner = `
 ██████╗██╗  ██╗ █████╗ ████████╗████████╗███████╗██████╗ ██╗  ██╗   ██╗
██╔════╝██║  ██║██╔══██╗╚══██╔══╝╚══██╔══╝██╔════╝██╔══██╗██║  ╚██╗ ██╔╝
██║     ███████║███████║   ██║      ██║   █████╗  ██████╔╝██║   ╚████╔╝
██║     ██╔══██║██╔══██║   ██║      ██║   ██╔══╝  ██╔══██╗██║    ╚██╔╝
╚██████╗██║  ██║██║  ██║   ██║      ██║   ███████╗██║  ██║███████╗██║
 ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝   ╚═╝      ╚═╝   ╚══════╝╚═╝  ╚═╝╚══════╝╚═╝
`

// Print shows the startup summary: where the daemon listens, where data
// lives, and which live-feed transport is active.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:     %s\n", cfg.Addr())
	fmt.Printf("DB Path:    %s\n", cfg.Storage.DBPath)
	fmt.Printf("Uploads:    %s\n", cfg.Storage.UploadDir)
	if cfg.Feed.NatsURL != "" {
		fmt.Printf("Live feed:  nats (%s)\n", cfg.Feed.NatsURL)
	} else {
		fmt.Println("Live feed:  in-process")
	}
	if cfg.Retention.Enabled {
		fmt.Printf("Retention:  enabled (cron=%s)\n", cfg.Retention.Cron)
	} else {
		fmt.Println("Retention:  disabled")
	}
	if version != "" {
		fmt.Printf("Version:    %s\n", version)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/session                    - install identity")
	fmt.Println("GET  /v1/channels                   - channel list, newest first")
	fmt.Println("GET  /v1/channels/{id}/messages     - open a conversation")
	fmt.Println("POST /v1/messages                   - send text")
	fmt.Println("POST /v1/uploads                    - send a file")
	fmt.Println("GET  /v1/live                       - WebSocket event stream")
	fmt.Println("GET  /docs/                         - API docs")
}
