// main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xhunter101/cis-benchmark-tool/cmd"
)

func main() {
	startTime := time.Now()

	printBanner()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}

	elapsedTime := time.Since(startTime)
	fmt.Printf("\nTotal execution time: %s\n", elapsedTime.Round(time.Millisecond))
}

func printBanner() {
	banner := `
  ____ ___ ____       _             _ _ _
 / ___|_ _/ ___|     / \  _   _  __| (_) |_
| |    | |\___ \    / _ \| | | |/ _' | | __|
| |___ | | ___) |  / ___ \ |_| | (_| | | |_
 \____|___|____/  /_/   \_\__,_|\__,_|_|\__|

 CIS Benchmark Compliance Audit
 Version: 1.0.0
 Started at: %s
`
	fmt.Printf(banner, time.Now().Format("2006-01-02 15:04:05"))
}
