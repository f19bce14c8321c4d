package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Liveness sidecar: relays the daemon's own /healthz so orchestrators can
// probe a lean endpoint that bypasses the main router's middleware. An
// unreachable or unhealthy daemon reports 503 here.
func main() {
	addr := flag.String("addr", ":8081", "listen address for the health probe")
	target := flag.String("target", "http://localhost:8080", "base URL of the chatterly daemon")
	timeout := flag.Duration("timeout", 2*time.Second, "per-check timeout against the daemon")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	fmt.Printf("health probe listening on %s, checking %s\n", *addr, *target)
	srv := &fasthttp.Server{
		Handler:            probeHandler(client, *target+"/healthz", *timeout),
		Name:               "chatterly-healthprobe",
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxRequestBodySize: 1 << 20,
	}
	if err := srv.ListenAndServe(*addr); err != nil {
		fmt.Printf("health probe exit: %v\n", err)
	}
}

// probeHandler answers /health and /healthz with the daemon's current
// health, checked per request.
func probeHandler(client *fasthttp.Client, healthURL string, timeout time.Duration) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/health", "/healthz":
			ctx.Response.Header.Set("Content-Type", "application/json")
			status, body, err := client.GetTimeout(nil, healthURL, timeout)
			if err != nil {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"unreachable\",\"error\":%q}", err.Error()))
				return
			}
			if status != fasthttp.StatusOK {
				ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
				_, _ = ctx.WriteString(fmt.Sprintf("{\"status\":\"unhealthy\",\"daemon_status\":%d}", status))
				return
			}
			ctx.SetStatusCode(fasthttp.StatusOK)
			_, _ = ctx.Write(body)
		default:
			ctx.SetStatusCode(fasthttp.StatusNotFound)
		}
	}
}
