// Command hookchain loads a hook plan and dry-runs calls through it.
package main

import "github.com/Sentinel-Gate/hookchain/cmd/hookchain/cmd"

func main() {
	cmd.Execute()
}
