package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/caseforge/caseforge/internal/domain"
)

const identityKey = "identity"

// guestCookie carries the locally generated id of an unauthenticated
// visitor across requests.
const guestCookie = "cf_guest"

// Identity resolves the caller for every request. A signed-in user is
// identified by the upstream auth proxy's headers; anyone else becomes a
// guest with a locally generated opaque id, remembered in a cookie.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := c.GetHeader("X-User-ID"); userID != "" {
			c.Set(identityKey, domain.Identity{
				UserID: userID,
				Name:   c.GetHeader("X-User-Name"),
				Avatar: c.GetHeader("X-User-Avatar"),
			})
			c.Next()
			return
		}

		guestID, err := c.Cookie(guestCookie)
		if err != nil || guestID == "" {
			guestID = "guest-" + uuid.New().String()
			c.SetCookie(guestCookie, guestID, 60*60*24*30, "/", "", false, true)
		}
		c.Set(identityKey, domain.Identity{
			UserID:  guestID,
			Name:    "Guest",
			IsGuest: true,
		})
		c.Next()
	}
}

// CallerIdentity reads the identity attached by the Identity middleware.
func CallerIdentity(c *gin.Context) domain.Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{UserID: "guest-" + uuid.New().String(), Name: "Guest", IsGuest: true}
}
