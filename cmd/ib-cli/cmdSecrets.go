package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("empty password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

func newSecret(n int) (string, error) {
	if n < 24 {
		return "", errors.Errorf("secret must be at least 24 bytes, got %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashPasswordCmd(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: ib-cli hash-password <password>", 2)
	}
	hash, err := hashPassword(c.Args().First(), c.Int("cost"))
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

func secretCmd(c *cli.Context) error {
	s, err := newSecret(c.Int("bytes"))
	if err != nil {
		return err
	}
	fmt.Println(s)
	return nil
}
