package model

import (
	"fmt"
	"strings"
)

type Role string

const (
	RoleDoctor    Role = "doctor"
	RoleNurse     Role = "nurse"
	RoleLab       Role = "lab"
	RoleRadiology Role = "radiology"
	RolePatient   Role = "patient"
	// RoleService is an integration (the follow-up agent) holding the
	// service key.
	RoleService Role = "service"
)

func ParseStaffRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleDoctor, RoleNurse, RoleLab, RoleRadiology:
		return r, nil
	default:
		return "", fmt.Errorf("invalid staff role %q", s)
	}
}

// StaffMember is one entry of the configured authorization table.
type StaffMember struct {
	ID           string `json:"id" mapstructure:"id"`
	Name         string `json:"name" mapstructure:"name"`
	PasscodeHash string `json:"-" mapstructure:"passcode_hash"`
}

type LoginRequest struct {
	Role     string `json:"role" binding:"required,oneof=doctor nurse lab radiology"`
	StaffID  string `json:"staff_id" binding:"required"`
	Passcode string `json:"passcode"`
}

type PatientLoginRequest struct {
	PatientCode string `json:"patient_code" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	Role        Role   `json:"role"`
	Subject     string `json:"subject"`
	Name        string `json:"name"`
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	Role    Role
	Subject string
	Name    string
}
