// Package core implements the Keeper Secrets Manager client: one-time token
// binding, the encrypted transport envelope, record and folder decryption,
// the mutation protocol and keeper:// notation queries.
package core

// ClientVersion is sent with every request and must name a version the
// backend has registered for this SDK line.
const ClientVersion = "mg16.6.5"

// clientIDHashTag is the HMAC-SHA-512 message used to derive the client
// identifier from the one-time token secret.
const clientIDHashTag = "KEEPER_SECRETS_MANAGER_CLIENT_ID"

// DefaultKeeperHostname is the US region host. It is not applied
// automatically: a token without a region prefix needs an explicit or stored
// hostname.
const DefaultKeeperHostname = "keepersecurity.com"

// defaultServerPublicKeyID selects the transmission-key wrapping key when
// the configuration does not name one.
const defaultServerPublicKeyID = "10"

// Environment variables read once in the client constructor.
const (
	EnvKSMToken      = "KSM_TOKEN"
	EnvKSMConfig     = "KSM_CONFIG"
	EnvKSMSkipVerify = "KSM_SKIP_VERIFY"
)

// keeperServers maps region aliases, usable as the ALIAS in an
// "ALIAS:SECRET" token, to hostnames.
var keeperServers = map[string]string{
	"US":     "keepersecurity.com",
	"EU":     "keepersecurity.eu",
	"AU":     "keepersecurity.com.au",
	"US_GOV": "govcloud.keepersecurity.us",
	"JP":     "keepersecurity.jp",
	"CA":     "keepersecurity.ca",
}

// keeperPublicKeys holds the published server public keys (uncompressed SEC1
// points, URL-safe base64) used to wrap per-request transmission keys. The
// id is carried in the PublicKeyId header; the server requests a different
// id through the key-rotation error.
var keeperPublicKeys = map[string]string{
	"1":  "BK9w6TZFxE6nFNbMfIpULCup2a8xc6w2tUTABjxny7yFmxW0dAEojwC6j6zb5nTlmb1dAx8nwo3qF7RPYGmloRM",
	"2":  "BKnhy0obglZJK-igwthNLdknoSXRrGB-mvFRzyb_L-DKKefWjYdFD2888qN1ROczz4n3keYSfKz9Koj90Z6w_tQ",
	"3":  "BAsPQdCpLIGXdWNLdAwx-3J5lNqUtKbaOMV56hUj8VzxE2USLHuHHuKDeno0ymJt-acxWV1xPlBfNUShhRTR77g",
	"4":  "BNYIh_Sv03nRZUUJveE8d2mxKLIDXv654UbshaItHrCJhd6cT7pdZ_XwbdyxAOCWMkBb9AZ4t1XRCsM8-wkEBRg",
	"5":  "BA6uNfeYSvqagwu4TOY6wFK4JyU5C200vJna0lH4PJ-SzGVXej8l9dElyQ58_ljfPs5Rq6zVVXpdDe8A7Y3WRhk",
	"6":  "BMjTIlXfohI8TDymsHxo0DqYysCy7yZGJ80WhgOBR4QUd6LBDA6-_318a-jCGW96zxXKMm8clDTKpE8w75KG-FY",
	"7":  "BJBDU1P1H21IwIdT2brKkPqbQR0Zl0TIHf7Bz_OO9jaNgIwydMkxt4GpBmkYoprZ_DHUGOrno2faB7pmTR7HhuI",
	"8":  "BJFF8j-dH7pDEw_U347w2CBM6xYM8Dk5fPPAktjib-opOqzvvbsER-WDHM4ONCSBf9O_obAHzCyygxmtpktDuiE",
	"9":  "BDKyWBvLbyZ-d6ZU25nmdEME5JFC3FJFJdzSRnfQYEAOOxaGBsKqK2nCkNHQYsMZ419wgDj9Wy7offffwq3fLsI",
	"10": "BDXyZZnrl0tc2jdC5I61JjwkjK2kr7uet9tZjt8StTiJTAQQmnVOYBgbtP08PWDbecxnHghx3kJ8QXq1XE68y8c",
	"11": "BLsfkYuYtAFJVpBMGHDJD_M1kGvLZ1X1rQnFfnjYPbbAgRE1BswVmFjKqK6MeDd3cTVKGpmoLEUxBZ8ePeUQm94",
}
