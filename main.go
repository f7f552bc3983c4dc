// The main package for the chartscraper executable.
package main

import (
	"github.com/JakeFAU/realtime-chart-scraper/cmd"
)

func main() {
	cmd.Execute()
}
