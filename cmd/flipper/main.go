// Command flipper generates module bindings, calls device modules and runs
// a virtual device.
package main

func main() {
	Execute()
}
