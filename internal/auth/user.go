package auth

import (
	"encoding/json"
	"strconv"
)

// User владелец сохраненных маршрутов, как его возвращает сервис авторизации
type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// ToJSON сериализует пользователя для кеша
func (u *User) ToJSON() ([]byte, error) {
	return json.Marshal(u)
}

// UserFromJSON десериализует пользователя из кеша
func UserFromJSON(data []byte) (*User, error) {
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Owner ключ владельца для счетчика поколений обработки
func (u *User) Owner() string {
	return "user:" + strconv.Itoa(u.ID)
}
