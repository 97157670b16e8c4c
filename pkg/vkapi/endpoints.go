package vkapi

import (
	"net/url"
	"strings"

	"vkharvest/pkg/schedule"
)

const (
	// DefaultBaseURL is the provider's method root
	DefaultBaseURL = "https://api.vk.com/method"
	// DefaultVersion is the protocol version sent with every call
	DefaultVersion = "5.199"

	// CodeRateLimit is the execution error code for a credential whose quota
	// for the method is used up
	CodeRateLimit = 29
)

// ProfileFields is the field list requested by the users procedure
var ProfileFields = []string{
	"user_id", "about", "activities", "books", "career", "city", "country",
	"has_photo", "has_mobile", "home_town", "schools", "status", "games",
	"interests", "military", "movies", "music", "occupation", "personal",
	"quotes", "relation", "universities", "screen_name", "verified", "counters",
}

// Procedure returns the stored procedure name serving m
func Procedure(m schedule.Method) string {
	return "execute." + m.String() + "_info"
}

// Endpoint builds the procedure URL under base
func Endpoint(base string, m schedule.Method) string {
	return strings.TrimRight(base, "/") + "/" + Procedure(m)
}

// Params builds the form body for one batch
func Params(m schedule.Method, batch schedule.Batch, token, version string) url.Values {
	v := url.Values{}
	v.Set("users_id", batch.Join())
	v.Set("access_token", token)
	v.Set("v", version)
	if m == schedule.Users {
		v.Set("fields", strings.Join(ProfileFields, ","))
	}
	return v
}
