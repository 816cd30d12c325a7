package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) loginHandler(c *gin.Context) {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		abortWithError(c, err, nil)
		return
	}

	signed, err := s.admin.Login(req.Username, req.Password)
	if err != nil {
		s.log.Warn().Str("username", req.Username).Str("client_ip", c.ClientIP()).Msg("admin login rejected")
		abortWithError(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     signed,
		"expiresIn": formatTTL(s.opts.CredentialTTL),
	})
}
