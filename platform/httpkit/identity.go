// Package httpkit provides HTTP utilities including identity abstraction.
package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Identity represents the authenticated device's identity.
// This interface abstracts identity extraction from the web framework,
// allowing handlers to access device information without depending on Gin.
type Identity interface {
	// DeviceID returns the authenticated device's ID.
	DeviceID() uuid.UUID
	// BusinessUnitID returns the device's business unit, if present in the token.
	BusinessUnitID() *uuid.UUID
	// IsAuthenticated returns true if the device is authenticated.
	IsAuthenticated() bool
}

// identity is the concrete implementation of Identity.
type identity struct {
	deviceID       uuid.UUID
	businessUnitID *uuid.UUID
	authenticated  bool
}

func (i *identity) DeviceID() uuid.UUID {
	return i.deviceID
}

func (i *identity) BusinessUnitID() *uuid.UUID {
	return i.businessUnitID
}

func (i *identity) IsAuthenticated() bool {
	return i.authenticated
}

// GetIdentity extracts the Identity from a Gin context.
// Returns an unauthenticated identity if device info is not present.
func GetIdentity(c *gin.Context) Identity {
	deviceID, deviceOK := c.Get(ContextDeviceIDKey)
	if !deviceOK {
		return &identity{authenticated: false}
	}

	did, ok := deviceID.(uuid.UUID)
	if !ok {
		return &identity{authenticated: false}
	}

	var buID *uuid.UUID
	if raw, ok := c.Get(ContextBusinessUnitIDKey); ok {
		if parsed, ok := raw.(uuid.UUID); ok {
			buID = &parsed
		}
	}

	return &identity{
		deviceID:       did,
		businessUnitID: buID,
		authenticated:  true,
	}
}

// MustGetIdentity extracts the Identity from a Gin context.
// If the device is not authenticated, it aborts with 401 Unauthorized and returns nil.
func MustGetIdentity(c *gin.Context) Identity {
	id := GetIdentity(c)
	if !id.IsAuthenticated() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil
	}
	return id
}
