// @title Shravan API
// @version 1.0
// @description Guidance for visually impaired users from a camera frame, a spoken or typed question and the server location.
// @BasePath /
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	_ "shravan-server-go/docs"
	"shravan-server-go/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (defaults to $"+bootstrap.ConfigEnv+" or ./config.yaml)")
	flag.Parse()

	fmt.Printf("[%s] [INFO] [BOOT] starting shravan-server...\n", time.Now().Format("2006-01-02 15:04:05.000"))
	if err := bootstrap.Run(context.Background(), bootstrap.Options{ConfigPath: *configPath}); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "shravan-server failed: %v\n", err)
		os.Exit(1)
	}
}
