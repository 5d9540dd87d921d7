package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/emersion/go-imap/client"

	"github.com/mailmirror/mailmirror/internal/enum"
	mmerrors "github.com/mailmirror/mailmirror/internal/errors"
	"github.com/mailmirror/mailmirror/internal/models"
)

// connect establishes and authenticates an IMAP session for the account.
// Dial and capability failures surface as connection errors, login
// failures as authentication errors, so the orchestrator can apply the
// right retry policy.
func connect(ctx context.Context, account *models.Account) (*client.Client, error) {
	serverAddr := fmt.Sprintf("%s:%d", account.ImapServer, account.ImapPort)

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	var c *client.Client
	var err error

	if account.ImapSecurity == enum.EmailSecurityTLS || account.ImapSecurity == enum.EmailSecuritySSL {
		tlsConfig := &tls.Config{
			ServerName: account.ImapServer,
		}
		c, err = client.DialWithDialerTLS(dialer, serverAddr, tlsConfig)
	} else {
		c, err = client.DialWithDialer(dialer, serverAddr)
	}
	if err != nil {
		return nil, mmerrors.Connection(fmt.Errorf("connection error: %w", err))
	}

	c.Timeout = 30 * time.Second
	caps, err := c.Capability()
	if err != nil {
		c.Logout()
		return nil, mmerrors.Connection(fmt.Errorf("capability error: %w", err))
	}
	log.Printf("[%s] Server capabilities: %v", account.ID, caps)

	err = c.Login(account.ImapUsername, account.ImapPassword)
	if err != nil {
		c.Logout()
		return nil, mmerrors.Authentication(fmt.Errorf("login error: %w", err))
	}

	// Reset timeout for normal operations
	c.Timeout = 0

	log.Printf("[%s] Successfully connected to %s", account.ID, serverAddr)
	return c, nil
}
