package storage

import "fmt"

const ns = "tixwizard:v1"

func KeySessionPrefix(sessionID string) string {
	return fmt.Sprintf("%s:session:%s:", ns, sessionID)
}

func KeyIdemSelection(sessionID, idemKey string) string {
	return fmt.Sprintf("%s:idem:selection:%s:%s", ns, sessionID, idemKey)
}

func KeyRenderCache(digest string) string {
	return fmt.Sprintf("%s:render:%s", ns, digest)
}

func ChannelSessionChanged() string {
	return ns + ":session:changed"
}

func KeyRateLimit(scope string) string {
	return fmt.Sprintf("%s:rl:%s", ns, scope)
}
