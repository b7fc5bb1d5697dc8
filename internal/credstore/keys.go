package credstore

import "fmt"

// Key builders for the namespaced credential store. All components go
// through these so key layout changes stay in one place.

func RegistrationKey(tenantID, userID, deviceID, modality string) string {
	return fmt.Sprintf("biometric_reg:%s:%s:%s:%s", tenantID, userID, deviceID, modality)
}

// FailureCounterKey holds the atomic lockout counter for one registration
// tuple. Kept separate from the registration record so concurrent
// authentication attempts increment it atomically instead of racing on a
// read-modify-write of the whole record.
func FailureCounterKey(tenantID, userID, deviceID, modality string) string {
	return fmt.Sprintf("biometric_fail:%s:%s:%s:%s", tenantID, userID, deviceID, modality)
}

// ModalitiesKey indexes the enrolled modalities of one device, so
// unregistering a whole device can find them.
func ModalitiesKey(tenantID, userID, deviceID string) string {
	return fmt.Sprintf("biometric_mods:%s:%s:%s", tenantID, userID, deviceID)
}

func SessionTokenKey(token string) string {
	return fmt.Sprintf("biometric_session:%s", token)
}

func DeviceTokenKey(token string) string {
	return fmt.Sprintf("device_token:%s", token)
}

// UserTokensKey indexes the push-token strings registered for one user.
func UserTokensKey(tenantID, userID string) string {
	return fmt.Sprintf("user_tokens:%s:%s", tenantID, userID)
}

// TenantUsersKey indexes the users of a tenant that have registered at
// least one push token.
func TenantUsersKey(tenantID string) string {
	return fmt.Sprintf("tenant_users:%s", tenantID)
}

// UserSessionsKey holds the authoritative session list for one user.
func UserSessionsKey(tenantID, userID string) string {
	return fmt.Sprintf("user_sessions:%s:%s", tenantID, userID)
}

// HeartbeatKey holds the liveness record one device pushes for itself.
func HeartbeatKey(tenantID, userID, deviceID string) string {
	return fmt.Sprintf("heartbeat:%s:%s:%s", tenantID, userID, deviceID)
}
