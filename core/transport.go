package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/keeper-security/secrets-manager-go/infrastructure/crypto"
	"github.com/keeper-security/secrets-manager-go/infrastructure/errors"
	"github.com/keeper-security/secrets-manager-go/infrastructure/storage"
)

const transportComponent = "transport"

// ksmHTTPResponse is a raw server reply before envelope decryption.
type ksmHTTPResponse struct {
	StatusCode int
	Data       []byte
}

// generateTransmissionKey creates a fresh 32-byte key for a single exchange
// and wraps it to the server public key named by keyID.
func (c *SecretsManager) generateTransmissionKey(keyID string) (*TransmissionKey, error) {
	serverKey, ok := c.serverKeys[keyID]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeConfig, transportComponent, "server public key not found for key id %s", keyID)
	}
	serverKeyBytes, err := crypto.URLSafeStrToBytes(serverKey)
	if err != nil {
		return nil, err
	}
	key := crypto.GenerateRandomBytes(crypto.AESKeySize)
	encryptedKey, err := crypto.PublicEncrypt(key, serverKeyBytes, nil)
	if err != nil {
		return nil, err
	}
	return &TransmissionKey{
		PublicKeyID:  keyID,
		Key:          key,
		EncryptedKey: encryptedKey,
	}, nil
}

// encryptAndSignPayload serializes the payload, encrypts it under the
// transmission key and signs wrapped_key || ciphertext with the client
// private key.
func (c *SecretsManager) encryptAndSignPayload(tk *TransmissionKey, payload interface{}) (*EncryptedPayload, error) {
	raw, err := marshalPayload(transportComponent, payload)
	if err != nil {
		return nil, err
	}
	encrypted, err := crypto.EncryptAESGCM(tk.Key, raw)
	if err != nil {
		return nil, err
	}

	privateKeyB64, err := c.config.Get(storage.KeyPrivateKey)
	if err != nil {
		return nil, err
	}
	if privateKeyB64 == "" {
		return nil, errors.New(errors.ErrCodeConfig, transportComponent, "private key not found in configuration")
	}
	der, err := crypto.Base64ToBytes(privateKeyB64)
	if err != nil {
		return nil, err
	}
	privateKey, err := crypto.ParsePrivateKeyDER(der)
	if err != nil {
		return nil, err
	}

	signatureBase := make([]byte, 0, len(tk.EncryptedKey)+len(encrypted))
	signatureBase = append(signatureBase, tk.EncryptedKey...)
	signatureBase = append(signatureBase, encrypted...)
	signature, err := crypto.Sign(privateKey, signatureBase)
	if err != nil {
		return nil, err
	}
	return &EncryptedPayload{EncryptedPayload: encrypted, Signature: signature}, nil
}

// postFunction performs the raw HTTPS POST with the envelope headers.
func (c *SecretsManager) postFunction(url string, tk *TransmissionKey, payload *EncryptedPayload) (*ksmHTTPResponse, error) {
	if err := c.limiter.Wait(context.Background()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeHTTP, transportComponent, "rate limiter", err)
	}

	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload.EncryptedPayload))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHTTP, transportComponent, "create request", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Length", strconv.Itoa(len(payload.EncryptedPayload)))
	req.Header.Set("Authorization", "Signature "+crypto.BytesToBase64(payload.Signature))
	req.Header.Set("TransmissionKey", crypto.BytesToBase64(tk.EncryptedKey))
	req.Header.Set("PublicKeyId", tk.PublicKeyID)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHTTP, transportComponent, "post to keeper servers", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHTTP, transportComponent, "read response body", err)
	}
	return &ksmHTTPResponse{StatusCode: resp.StatusCode, Data: body}, nil
}

// serverError is the JSON body of a non-200 reply.
type serverError struct {
	ResultCode     string      `json:"result_code"`
	Error          string      `json:"error"`
	Message        string      `json:"message"`
	KeyID          interface{} `json:"key_id"`
	AdditionalInfo string      `json:"additional_info"`
}

func (e *serverError) code() string {
	if e.ResultCode != "" {
		return e.ResultCode
	}
	return e.Error
}

func (e *serverError) keyID() string {
	switch v := e.KeyID.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// handleHTTPError maps a non-200 reply to either a retry signal (server key
// rotation with a key the client knows) or a typed error.
func (c *SecretsManager) handleHTTPError(status int, body []byte) (bool, error) {
	var se serverError
	if err := json.Unmarshal(body, &se); err != nil {
		return false, errors.Newf(errors.ErrCodeSerialization, transportComponent,
			"invalid error response (http %d): %s", status, string(body))
	}

	switch rc := se.code(); rc {
	case "key":
		keyID := se.keyID()
		if keyID == "" {
			return false, errors.New(errors.ErrCodeServerKeyRotation, transportComponent, "the public key id is blank in the server response")
		}
		if _, known := c.serverKeys[keyID]; !known {
			return false, errors.Newf(errors.ErrCodeServerKeyRotation, transportComponent, "the public key id %s does not exist in the SDK", keyID)
		}
		c.log.Infof("server has requested public key %s", keyID)
		if err := c.config.Set(storage.KeyServerPublicKeyID, keyID); err != nil {
			return false, err
		}
		c.metrics.ObserveKeyRotation()
		return true, nil

	case "invalid_client_version":
		return false, errors.Newf(errors.ErrCodeInvalidClientVersion, transportComponent,
			"client version %s was not registered in the backend: %s", ClientVersion, se.AdditionalInfo)

	default:
		msg := se.Message
		if msg == "" {
			msg = string(body)
		}
		return false, errors.Newf(errors.ErrCodeHTTP, transportComponent,
			"error %s (http %d): %s", rc, status, msg)
	}
}

// PostQuery is one full envelope exchange: wrap a fresh transmission key,
// encrypt and sign the payload, POST, decrypt the reply. A recognized
// key-rotation error retries the whole exchange once.
func (c *SecretsManager) PostQuery(path string, payload interface{}) ([]byte, error) {
	url := fmt.Sprintf("https://%s/api/rest/sm/v1/%s", c.Hostname(), path)
	log := c.log.WithTrace()

	retried := false
	for {
		keyID, err := c.config.Get(storage.KeyServerPublicKeyID)
		if err != nil {
			return nil, err
		}
		if keyID == "" {
			keyID = defaultServerPublicKeyID
		}
		tk, err := c.generateTransmissionKey(keyID)
		if err != nil {
			return nil, err
		}
		encrypted, err := c.encryptAndSignPayload(tk, payload)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.postFunction(url, tk, encrypted)
		if err != nil {
			if cached, ok := c.cacheFallback(path, err); ok {
				tk.Key = cached[:crypto.AESKeySize]
				resp = &ksmHTTPResponse{StatusCode: http.StatusOK, Data: cached[crypto.AESKeySize:]}
			} else {
				return nil, err
			}
		} else {
			c.metrics.ObserveRequest(path, strconv.Itoa(resp.StatusCode), time.Since(start))
			if resp.StatusCode == http.StatusOK && path == "get_secret" && c.cache != nil {
				blob := make([]byte, 0, len(tk.Key)+len(resp.Data))
				blob = append(blob, tk.Key...)
				blob = append(blob, resp.Data...)
				if err := c.cache.SaveCachedValue(blob); err != nil {
					log.Warnf("failed to save offline cache: %v", err)
				}
			}
		}

		if resp.StatusCode == http.StatusOK {
			log.Debugf("successful call to %s", path)
			if len(resp.Data) == 0 {
				return []byte{}, nil
			}
			return crypto.DecryptAESGCM(tk.Key, resp.Data)
		}

		retry, herr := c.handleHTTPError(resp.StatusCode, resp.Data)
		if herr != nil {
			log.Errorf("call to %s failed: %v", path, herr)
			return nil, herr
		}
		if retry && !retried {
			retried = true
			continue
		}
		return nil, errors.New(errors.ErrCodeServerKeyRotation, transportComponent, "server requested another key rotation after a retry")
	}
}

// cacheFallback returns the cached transmission_key || ciphertext blob when
// the failed call is eligible for offline replay.
func (c *SecretsManager) cacheFallback(path string, cause error) ([]byte, bool) {
	if path != "get_secret" || c.cache == nil {
		return nil, false
	}
	cached, err := c.cache.GetCachedValue()
	if err != nil || len(cached) <= crypto.AESKeySize {
		return nil, false
	}
	c.log.Warnf("network failure, answering get_secret from the offline cache: %v", cause)
	c.metrics.ObserveCacheFallback()
	return cached, true
}
