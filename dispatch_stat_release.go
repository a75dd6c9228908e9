//go:build !debug

package taskq

func statPromoted(running int) {}
func statAbsorbed()            {}
