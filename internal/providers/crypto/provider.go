package crypto

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/GriffinCanCode/localwebapp/internal/service"
	"github.com/GriffinCanCode/localwebapp/internal/shared/types"
	"github.com/GriffinCanCode/localwebapp/internal/shared/utils"
)

// Name is the capability name
const Name = "crypto"

// Limits on caller-supplied sizes
const (
	MaxRandomBytes = 1024
	MinBcryptCost  = bcrypt.MinCost
	MaxBcryptCost  = 14
)

// Provider exposes hashing, HMAC, randomness and password hashing
type Provider struct{}

// New creates the crypto provider
func New() *Provider {
	return &Provider{}
}

// Definition returns capability metadata
func (p *Provider) Definition() types.Capability {
	algParam := types.Parameter{Name: "algorithm", Type: "string", Description: "sha256 (default) or sha512", Required: false}
	return types.Capability{
		Name:        Name,
		Description: "Cryptographic primitives",
		Commands: []types.Command{
			{
				Name:        "hash",
				Description: "Hex digest of data",
				Parameters: []types.Parameter{
					{Name: "data", Type: "string", Description: "Data to hash", Required: true},
					algParam,
				},
				Returns: "object",
			},
			{
				Name:        "hmac",
				Description: "Hex HMAC of data under key",
				Parameters: []types.Parameter{
					{Name: "key", Type: "string", Description: "Secret key", Required: true},
					{Name: "data", Type: "string", Description: "Data to authenticate", Required: true},
					algParam,
				},
				Returns: "object",
			},
			{
				Name:        "random",
				Description: "Cryptographically secure random bytes, base64 encoded",
				Parameters: []types.Parameter{
					{Name: "bytes", Type: "number", Description: "Number of bytes (default 32)", Required: false},
				},
				Returns: "object",
			},
			{Name: "uuid", Description: "Random UUID v4", Returns: "object"},
			{
				Name:        "password.hash",
				Description: "bcrypt hash of a password",
				Parameters: []types.Parameter{
					{Name: "password", Type: "string", Description: "Password", Required: true},
					{Name: "cost", Type: "number", Description: "bcrypt cost (default 10)", Required: false},
				},
				Returns: "object",
			},
			{
				Name:        "password.verify",
				Description: "Check a password against a bcrypt hash",
				Parameters: []types.Parameter{
					{Name: "password", Type: "string", Description: "Password", Required: true},
					{Name: "hash", Type: "string", Description: "bcrypt hash", Required: true},
				},
				Returns: "object",
			},
		},
	}
}

// Execute runs one command
func (p *Provider) Execute(ctx context.Context, cmd string, data interface{}, appCtx *types.AppContext) (interface{}, error) {
	params, err := service.ParamsOf(data)
	if err != nil {
		return nil, err
	}

	switch cmd {
	case "hash":
		return hash(params)
	case "hmac":
		return mac(params)
	case "random":
		return random(params)
	case "uuid":
		return map[string]interface{}{"uuid": uuid.NewString()}, nil
	case "password.hash":
		return hashPassword(params)
	case "password.verify":
		return verifyPassword(params)
	default:
		return nil, fmt.Errorf("unknown command: %s.%s", Name, cmd)
	}
}

func algorithm(params service.Params) (utils.HashAlgorithm, error) {
	alg, err := utils.ParseAlgorithm(params.OptString("algorithm", ""))
	if err != nil {
		return "", &service.ParamError{Name: "algorithm", Reason: err.Error()}
	}
	return alg, nil
}

func hash(params service.Params) (interface{}, error) {
	text, err := params.Text("data")
	if err != nil {
		return nil, err
	}
	alg, err := algorithm(params)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"algorithm": string(alg),
		"digest":    utils.NewHasher(alg).HashString(text),
	}, nil
}

func mac(params service.Params) (interface{}, error) {
	key, err := params.String("key")
	if err != nil {
		return nil, err
	}
	text, err := params.Text("data")
	if err != nil {
		return nil, err
	}
	alg, err := algorithm(params)
	if err != nil {
		return nil, err
	}

	h := hmac.New(alg.New, []byte(key))
	h.Write([]byte(text))
	return map[string]interface{}{
		"algorithm": string(alg),
		"mac":       hex.EncodeToString(h.Sum(nil)),
	}, nil
}

func random(params service.Params) (interface{}, error) {
	n, err := params.Int("bytes", 32)
	if err != nil {
		return nil, err
	}
	if n < 1 || n > MaxRandomBytes {
		return nil, &service.ParamError{Name: "bytes", Reason: fmt.Sprintf("must be between 1 and %d", MaxRandomBytes)}
	}

	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("random failed: %w", err)
	}
	return map[string]interface{}{
		"bytes": n,
		"data":  base64.StdEncoding.EncodeToString(buf),
	}, nil
}

func hashPassword(params service.Params) (interface{}, error) {
	password, err := params.String("password")
	if err != nil {
		return nil, err
	}
	cost, err := params.Int("cost", bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	if cost < MinBcryptCost || cost > MaxBcryptCost {
		return nil, &service.ParamError{Name: "cost", Reason: fmt.Sprintf("must be between %d and %d", MinBcryptCost, MaxBcryptCost)}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("password hash failed: %w", err)
	}
	return map[string]interface{}{"hash": string(hashed)}, nil
}

func verifyPassword(params service.Params) (interface{}, error) {
	password, err := params.String("password")
	if err != nil {
		return nil, err
	}
	hashed, err := params.String("hash")
	if err != nil {
		return nil, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(hashed), []byte(password))
	switch {
	case err == nil:
		return map[string]interface{}{"valid": true}, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return map[string]interface{}{"valid": false}, nil
	default:
		return nil, &service.ParamError{Name: "hash", Reason: err.Error()}
	}
}
