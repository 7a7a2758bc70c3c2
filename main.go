// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/hitbuild/hit/cmd/hit"

func main() {
	cmd.Execute()
}
