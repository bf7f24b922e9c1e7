package models

import (
	"strings"

	"github.com/mssola/useragent"
)

// DeviceInfo is the coarse platform derived from a user agent string.
type DeviceInfo struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
}

const unknownDevice = "Unknown"

// ParseUserAgent classifies ua into an operating system and browser family.
func ParseUserAgent(ua string) DeviceInfo {
	if strings.TrimSpace(ua) == "" {
		return DeviceInfo{OS: unknownDevice, Browser: unknownDevice}
	}
	parsed := useragent.New(ua)
	name, _ := parsed.Browser()
	return DeviceInfo{OS: osFamily(parsed), Browser: browserFamily(name)}
}

func osFamily(ua *useragent.UserAgent) string {
	os := ua.OS()
	switch {
	case strings.HasPrefix(os, "Android"):
		return "Android"
	case strings.Contains(os, "iPhone OS"):
		return "iOS"
	}
	switch ua.Platform() {
	case "iPhone", "iPad", "iPod":
		return "iOS"
	}
	switch {
	case strings.HasPrefix(os, "Windows"):
		return "Windows"
	case strings.Contains(os, "Mac OS X"):
		return "MacOS"
	case strings.Contains(os, "Linux"):
		return "Linux"
	}
	return unknownDevice
}

func browserFamily(name string) string {
	switch name {
	case "Edge":
		return "Edge"
	case "Chrome", "Chromium":
		return "Chrome"
	case "Firefox":
		return "Firefox"
	case "Safari":
		return "Safari"
	}
	return unknownDevice
}
