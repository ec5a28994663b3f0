package main

import "family-calendar-backend/cmd"

func main() {
	cmd.Run()
}
