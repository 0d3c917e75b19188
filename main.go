package main

import "secondhand-aggregator/cmd"

func main() {
	cmd.Execute()
}
