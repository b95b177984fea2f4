// Command hashtrail runs and operates the hashtrail file integrity service.
package main

import "github.com/hashtrail-project/hashtrail/internal/cli"

func main() {
	cli.Execute()
}
