// Package signers provides the Signature Strategy Layer: constructors that turn
// a signing configuration into a stablecoin.Signer.
//
// It offers three patterns:
//   - Local keys: FromED25519Seed and FromECDSAKey sign in-process. Intended for
//     server-side use (treasury operators, bots, tests).
//   - Custodial strategies: New resolves a StrategyConfig (FireblocksConfig,
//     DFNSConfig, LocalConfig) into a Signer backed by the matching remote API.
//   - FromCallback: wraps an arbitrary signing function (HSM, bespoke custody).
//
// Remote signers honour the caller's context deadline. A timeout is reported as
// SIGNER_TIMEOUT (retryable), a refusal by the custody service as SIGNER_ERROR.
// No signature is returned unless the remote call completed successfully.
package signers
