package shell

import "strings"

// BlockFunc inspects one resolved command invocation (argv) and reports
// whether it must be refused. Blockers compose as an ordered list; any
// one of them matching blocks the invocation.
type BlockFunc func(args []string) bool

// CommandsBlocker blocks invocations whose command name is in names.
func CommandsBlocker(names []string) BlockFunc {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(args []string) bool {
		if len(args) == 0 {
			return false
		}
		_, hit := set[args[0]]
		return hit
	}
}

// ArgumentsBlocker blocks cmd only when its positional arguments start
// with subArgs and every flag in flags is present. So
// ArgumentsBlocker("npm", []string{"install"}, []string{"-g"}) blocks
// "npm install -g pkg" but not "npm install pkg".
func ArgumentsBlocker(cmd string, subArgs, flags []string) BlockFunc {
	return func(args []string) bool {
		if len(args) == 0 || args[0] != cmd {
			return false
		}
		var positional, present []string
		for _, a := range args[1:] {
			if strings.HasPrefix(a, "-") {
				present = append(present, a)
			} else {
				positional = append(positional, a)
			}
		}
		if len(positional) < len(subArgs) {
			return false
		}
		for i, want := range subArgs {
			if positional[i] != want {
				return false
			}
		}
		return containsAll(present, flags)
	}
}

func containsAll(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, f := range have {
		set[f] = struct{}{}
	}
	for _, f := range want {
		if _, ok := set[f]; !ok {
			return false
		}
	}
	return true
}

// BannedCommands is the default blocked-command set: commands that would
// escape the block layer itself (shells, interpreters, exec wrappers),
// reach the network, escalate privileges, or change the host system.
// Directory escapes are not handled here; cd is a shell builtin invisible
// to exec handlers, so the cwd clamp in carryState covers that.
var BannedCommands = []string{
	// re-exec and indirection
	"bash", "sh", "zsh", "fish", "csh", "tcsh", "ksh", "dash",
	"env", "nohup", "xargs", "strace", "ltrace",
	"python", "python3", "python2", "node", "ruby", "perl",
	"php", "lua", "tclsh", "wish",
	// network
	"aria2c", "axel", "curl", "curlie", "http-prompt", "httpie",
	"links", "lynx", "nc", "ncat", "scp", "sftp", "ssh",
	"telnet", "w3m", "wget", "xh",
	// privilege escalation
	"doas", "su", "sudo",
	// package managers
	"apk", "apt", "apt-cache", "apt-get", "dnf", "dpkg", "emerge",
	"home-manager", "makepkg", "opkg", "pacman", "paru", "pkg",
	"pkg_add", "pkg_delete", "portage", "rpm", "yay", "yum", "zypper",
	// system state
	"at", "batch", "chkconfig", "crontab", "fdisk", "mkfs", "mount",
	"parted", "service", "systemctl", "umount",
	// network configuration
	"firewall-cmd", "ifconfig", "ip", "iptables", "netstat", "pfctl",
	"route", "ufw",
}

// DefaultBlockFuncs is the standard blocker stack: the banned-command set
// plus global/system package installs and the go-test exec escape.
func DefaultBlockFuncs() []BlockFunc {
	return []BlockFunc{
		CommandsBlocker(BannedCommands),
		ArgumentsBlocker("npm", []string{"install"}, []string{"-g"}),
		ArgumentsBlocker("npm", []string{"install"}, []string{"--global"}),
		ArgumentsBlocker("pnpm", []string{"add"}, []string{"-g"}),
		ArgumentsBlocker("pnpm", []string{"add"}, []string{"--global"}),
		ArgumentsBlocker("yarn", []string{"global"}, nil),
		ArgumentsBlocker("pip", []string{"install"}, nil),
		ArgumentsBlocker("pip3", []string{"install"}, nil),
		ArgumentsBlocker("gem", []string{"install"}, nil),
		ArgumentsBlocker("cargo", []string{"install"}, nil),
		ArgumentsBlocker("go", []string{"install"}, nil),
		ArgumentsBlocker("go", []string{"test"}, []string{"-exec"}),
	}
}
