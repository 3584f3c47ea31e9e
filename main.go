package main

import "obdscan/cmd"

func main() {
	cmd.Execute()
}
