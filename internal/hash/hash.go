package hash

import "golang.org/x/crypto/bcrypt"

// Cost is fixed at deployment time. bcrypt.DefaultCost is 10 rounds.
const Cost = bcrypt.DefaultCost

func HashPassword(password string) (string, error) {
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), Cost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

// CheckPassword compares inside the bcrypt primitive, never by plaintext
// equality.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
