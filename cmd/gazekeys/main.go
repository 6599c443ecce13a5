// gazekeys - hands-free arrow keys from a webcam
//
// Double blink to arm a command session, glance in a direction to press the
// matching arrow key, double blink again to disarm.
package main

func main() {
	Execute()
}
