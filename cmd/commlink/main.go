// Command commlink is a terminal client for the commlink chat backend.
package main

func main() {
	Execute()
}
