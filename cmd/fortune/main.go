// Command fortune is the divination CLI and HTTP server.
package main

func main() {
	Execute()
}
