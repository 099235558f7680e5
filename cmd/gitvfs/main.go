package main

import "github.com/gitvfs/gitvfs/cmd/gitvfs/cmd"

func main() {
	cmd.Execute()
}
