package integrity

// SignaturePrefix precedes the content digest in a package signature.
const SignaturePrefix = "sha256:"

// ExpectedSignature returns the signature a package declaring hash must carry.
func ExpectedSignature(hash string) string {
	return SignaturePrefix + hash
}

// VerifySignature checks that signature is exactly "sha256:" followed by the
// declared hash. The comparison is byte for byte: a digest that differs only
// in case does not match.
func VerifySignature(hash, signature string) error {
	if signature == "" {
		return ErrMissingSignature
	}
	if hash == "" || signature != ExpectedSignature(hash) {
		return ErrSignatureMismatch
	}
	return nil
}
