package stablecoin

import (
	"strings"

	"github.com/marwen-abid/stablecoin-sdk-go/errors"
)

// Role is a bytes32 role identifier of the stablecoin contract facet, hex encoded
// with a 0x prefix.
type Role string

const (
	RoleDefaultAdmin Role = "0x0000000000000000000000000000000000000000000000000000000000000000"
	RoleCashIn       Role = "0x53300d27a2268d3ff3ecb0ec8e628321ecfba1a08aed8b817e8acf589a52d25c"
	RoleBurn         Role = "0xe97b137254058bd94f28d2f3eb79e2d34074ffb488d042e3bc958e0a57d2fa22"
	RoleWipe         Role = "0x515f99f4e5a381c770462a8d9879a01f0fd4a414a168a2404dab62a62e1af0c3"
	RoleRescue       Role = "0x43f433f336cda92fbbe5bfbdd344a9fd79b2ef138cd6e6fc49d55e2f54e1d99a"
	RolePause        Role = "0x139c2898040ef16910dc9f44dc697df79363da767d8bc92f2e310312b816e46d"
	RoleFreeze       Role = "0x5789b43a60de35bcedee40618ae90979bab7d1315fd4b079234241bdab19936d"
	RoleDelete       Role = "0x2b73f0f98ad60ca619bbdee4bcd175da1127db86346339f8b718e3f8b4a006e2"
	RoleKYC          Role = "0xdb11624602202c396fa347735a55e345a3aeb3e60f8885e1a71f1bf8d5886db7"
	RoleCustomFees   Role = "0x6db8586688d24c6a6367d21f709d650b12a2a61dd75e834bd8cd90fd6afa794b"

	// RoleWithout pads the fixed-size array returned by getRoles. Like the
	// other roles except DEFAULT_ADMIN and RESCUE it is keccak256 of its name.
	RoleWithout Role = "0xe11b25922c3ff9f0f0a34f0b8929ac96a1f215b99dcb08c2891c220cf3a7e8cc"
)

var roleNames = map[Role]string{
	RoleDefaultAdmin: "DEFAULT_ADMIN_ROLE",
	RoleCashIn:       "CASHIN_ROLE",
	RoleBurn:         "BURN_ROLE",
	RoleWipe:         "WIPE_ROLE",
	RoleRescue:       "RESCUE_ROLE",
	RolePause:        "PAUSE_ROLE",
	RoleFreeze:       "FREEZE_ROLE",
	RoleDelete:       "DELETE_ROLE",
	RoleKYC:          "KYC_ROLE",
	RoleCustomFees:   "CUSTOM_FEES_ROLE",
	RoleWithout:      "WITHOUT_ROLE",
}

// Name returns the contract constant name of the role.
func (r Role) Name() string {
	if name, ok := roleNames[Role(strings.ToLower(string(r)))]; ok {
		return name
	}
	return string(r)
}

// ParseRole accepts either a constant name ("BURN_ROLE") or its hex identifier.
func ParseRole(s string) (Role, error) {
	candidate := Role(strings.ToLower(s))
	if _, ok := roleNames[candidate]; ok {
		return candidate, nil
	}
	for role, name := range roleNames {
		if strings.EqualFold(name, s) {
			return role, nil
		}
	}
	return "", errors.NewConfigError(errors.INVALID_ARGUMENT, "unknown role: "+s, nil)
}
