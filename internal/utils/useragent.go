package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// DeviceInfo is what the request logs keep of a User-Agent string
type DeviceInfo struct {
	DeviceType string `json:"device_type"` // mobile, tablet, desktop, unknown
	OS         string `json:"os"`
	Platform   string `json:"platform"` // android, ios, windows, mac, linux
	Browser    string `json:"browser"`
	IsBot      bool   `json:"is_bot"`
}

var tabletMarkers = []string{"ipad", "tablet", "kindle", "nexus 7", "nexus 9", "nexus 10", "sm-t"}

// ParseUserAgent extracts device information from a User-Agent string.
// The host shell's webview and HTTP client both identify through it.
func ParseUserAgent(userAgent string) DeviceInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return DeviceInfo{DeviceType: "unknown", OS: "Unknown", Platform: "unknown", Browser: "Unknown"}
	}

	parser := ua.New(userAgent)
	osInfo := parser.OSInfo()

	info := DeviceInfo{
		DeviceType: "desktop",
		OS:         strings.TrimSpace(osInfo.Name + " " + osInfo.Version),
		Platform:   platformOf(osInfo.Name),
		IsBot:      parser.Bot(),
	}
	if info.OS == "" {
		info.OS = "Unknown"
	}

	info.Browser, _ = parser.Browser()
	if info.Browser == "" {
		info.Browser = "Unknown"
	}

	if parser.Mobile() {
		info.DeviceType = "mobile"
		lower := strings.ToLower(userAgent)
		for _, marker := range tabletMarkers {
			if strings.Contains(lower, marker) {
				info.DeviceType = "tablet"
				break
			}
		}
	}

	return info
}

func platformOf(osName string) string {
	name := strings.ToLower(osName)
	switch {
	case strings.Contains(name, "android"):
		return "android"
	case strings.Contains(name, "ios"), strings.Contains(name, "iphone"):
		return "ios"
	case strings.Contains(name, "windows"):
		return "windows"
	case strings.Contains(name, "mac"):
		return "mac"
	case strings.Contains(name, "linux"), strings.Contains(name, "ubuntu"):
		return "linux"
	default:
		return "unknown"
	}
}
