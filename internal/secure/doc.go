// Package secure keeps service-account key material encrypted in memory.
//
// Keys fetched by the credential parser are sealed into a memguard enclave
// as soon as they are read. The plaintext is only exposed inside a locked
// buffer for the duration of a callback, e.g. while a key is written to the
// short-lived file handed to 'gcloud auth login --cred-file':
//
//	key := secure.Seal(contents)
//	defer key.Destroy()
//
//	err := key.WithBytes(func(b []byte) error {
//	    return os.WriteFile(path, b, 0o600)
//	})
//
// On Linux mlock is subject to RLIMIT_MEMLOCK. When it cannot be applied
// memguard falls back to ordinary memory; the data is still encrypted at rest.
package secure
