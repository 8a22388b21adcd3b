// Biomni - research agent session CLI
package main

func main() {
	Execute()
}
