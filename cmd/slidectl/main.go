// Package main provides slidectl, a maintenance CLI for the slide asset store.
// It works directly on the uploads directory and needs no running server.
package main

func main() {
	Execute()
}
