package browser

import "github.com/randomizedcoder/go-wsl-devkit/internal/env"

// InstallPaths returns the well-known install locations for a kind in a
// context, most likely first. Paths may contain environment variables
// (%LocalAppData% on windows) which the Locator expands.
func InstallPaths(k Kind, ctx env.Context) []string {
	switch k {
	case Chrome:
		return chromePaths(ctx)
	case Firefox:
		return firefoxPaths(ctx)
	case LibreWolf:
		return librewolfPaths(ctx)
	default:
		return nil
	}
}

func chromePaths(ctx env.Context) []string {
	switch ctx {
	case env.ControlNative:
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			`%LocalAppData%\Google\Chrome\Application\chrome.exe`,
		}
	case env.GuestVirtualized:
		return []string{
			"/mnt/c/Program Files/Google/Chrome/Application/chrome.exe",
			"/mnt/c/Program Files (x86)/Google/Chrome/Application/chrome.exe",
		}
	case env.OtherLinux:
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case env.OtherMacOS:
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		}
	default:
		return nil
	}
}

func firefoxPaths(ctx env.Context) []string {
	switch ctx {
	case env.ControlNative:
		return []string{
			`C:\Program Files\Mozilla Firefox\firefox.exe`,
			`C:\Program Files (x86)\Mozilla Firefox\firefox.exe`,
			`%LocalAppData%\Mozilla Firefox\firefox.exe`,
		}
	case env.GuestVirtualized:
		return []string{
			"/mnt/c/Program Files/Mozilla Firefox/firefox.exe",
			"/mnt/c/Program Files (x86)/Mozilla Firefox/firefox.exe",
		}
	case env.OtherLinux:
		return []string{
			"/usr/bin/firefox",
			"/usr/bin/firefox-esr",
			"/snap/bin/firefox",
		}
	case env.OtherMacOS:
		return []string{
			"/Applications/Firefox.app/Contents/MacOS/firefox",
		}
	default:
		return nil
	}
}

func librewolfPaths(ctx env.Context) []string {
	switch ctx {
	case env.ControlNative:
		return []string{
			`C:\Program Files\LibreWolf\librewolf.exe`,
			`C:\Program Files (x86)\LibreWolf\librewolf.exe`,
		}
	case env.GuestVirtualized:
		return []string{
			"/mnt/c/Program Files/LibreWolf/librewolf.exe",
			"/mnt/c/Program Files (x86)/LibreWolf/librewolf.exe",
		}
	case env.OtherLinux:
		return []string{
			"/usr/bin/librewolf",
			"/usr/local/bin/librewolf",
		}
	case env.OtherMacOS:
		return []string{
			"/Applications/LibreWolf.app/Contents/MacOS/librewolf",
		}
	default:
		return nil
	}
}
