package auth

import (
	"crypto/md5"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the password using DefaultCost.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// CheckPassword compares a bcrypt hashed password with its possible plaintext equivalent.
func CheckPassword(hash string, password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// PasswordProof вычисляет ожидаемый ключ входа classic клиента:
// последние 32 символа hex(md5(salt + username)) без нулей по краям.
func PasswordProof(salt, username string) string {
	sum := md5.Sum([]byte(salt + username))
	digest := hex.EncodeToString(sum[:])
	if len(digest) > 32 {
		digest = digest[len(digest)-32:]
	}
	return strings.Trim(digest, "0")
}

// VerifyProof сравнивает присланный клиентом ключ с ожидаемым.
// Ключ клиента нормализуется так же (нули по краям отбрасываются).
func VerifyProof(salt, username, key string) bool {
	return strings.Trim(key, "0") == PasswordProof(salt, username)
}

// SameNetwork сообщает, совпадают ли первые два октета адресов.
// Такие подключения проходят без проверки ключа.
func SameNetwork(localIP, remoteIP string) bool {
	a := strings.Split(localIP, ".")
	b := strings.Split(remoteIP, ".")
	if len(a) < 2 || len(b) < 2 {
		return false
	}
	return a[0] == b[0] && a[1] == b[1]
}
