// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

package middlewares

import "github.com/gin-gonic/gin"

// CallIDKey is the context key for the call a webhook is about
const CallIDKey = "call_id"

// CallID records the CallSid form value for logging and tracing
func CallID() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sid := c.PostForm("CallSid"); sid != "" {
			c.Set(CallIDKey, sid)
		}
		c.Next()
	}
}
