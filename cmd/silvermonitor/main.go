package main

import "github.com/Stripstone/OfflineEbayMonitor/internal/cli"

func main() {
	cli.Execute()
}
