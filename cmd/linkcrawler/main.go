// Command linkcrawler crawls core network devices over SSH, records one link
// per interface per crawl cycle and raises alerts when links change state.
//
// Usage:
//
//	linkcrawler crawl [--once] [--interval 15m]
//	linkcrawler alerts [--cycle N] [--json]
//	linkcrawler topology [--end-sites --device ID]
//	linkcrawler export [--out links.xlsx] [--cycle N]
//
// Configuration is read from LINKCRAWLER_CONFIG (default
// /etc/linkcrawler/config.yml). Every persistent flag can also be set through
// the environment: --log.level is LINKCRAWLER_LOG_LEVEL.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "linkcrawler: %v\n", err)
		os.Exit(1)
	}
}
