package credential

// NewKeyringStoreWithSecrets returns a KeyringStore backed by secrets.
func NewKeyringStoreWithSecrets(service, key string, secrets interface {
	Get(service, user string) (string, error)
	Set(service, user, password string) error
	Delete(service, user string) error
}) *KeyringStore {
	store := NewKeyringStore(service, key)
	store.secrets = secrets

	return store
}
