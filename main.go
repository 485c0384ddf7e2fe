package main

import "github.com/ValentinKolb/skipstore/cmd"

func main() {
	cmd.Execute()
}
