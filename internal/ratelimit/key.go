package ratelimit

import "strings"

// KeyForClient builds a limiter key for clientIP within scope.
func KeyForClient(scope Scope, clientIP string) string {
	ip := strings.TrimSpace(clientIP)
	if scope == "" || ip == "" {
		return ""
	}
	return "ip:" + string(scope) + ":" + ip
}
