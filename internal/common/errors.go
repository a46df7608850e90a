// Package common — errors.go определяет пользовательские ошибки,
// которые используются во всех модулях бота.
// Эти ошибки позволяют сервисам и обработчикам различать типы проблем
// (не найдено, неверная конфигурация) без разбора текста ошибки.
package common

import "errors"

// Общие ошибки
var (
	// ErrNotFound — запись не найдена в базе
	ErrNotFound = errors.New("запись не найдена")
	// ErrInvalidLimit — некорректный limit/offset для выборки
	ErrInvalidLimit = errors.New("limit должен быть > 0, offset >= 0")
)

// Ошибки кармы
var (
	// ErrChannelIgnored — карма в канале отключена
	ErrChannelIgnored = errors.New("карма в этом канале отключена")
	// ErrInvalidEmojiValue — значение кармы эмодзи вне допустимого диапазона
	ErrInvalidEmojiValue = errors.New("значение кармы эмодзи должно быть -1, 0 или 1")
	// ErrInvalidBoard — неизвестный тип доски
	ErrInvalidBoard = errors.New("неизвестный тип доски")
)

// Ошибки starboard
var (
	// ErrInvalidThreshold — порог реакций должен быть положительным
	ErrInvalidThreshold = errors.New("порог реакций должен быть больше 0")
	// ErrChannelInUse — канал уже используется как источник или starboard
	ErrChannelInUse = errors.New("канал уже используется как источник или starboard")
	// ErrTargetIsSource — starboard-канал уже настроен как источник
	ErrTargetIsSource = errors.New("starboard-канал уже используется как источник")
	// ErrSameChannel — источник и starboard совпадают
	ErrSameChannel = errors.New("источник и starboard не могут совпадать")
	// ErrNotConfigured — канал не настроен как источник starboard
	ErrNotConfigured = errors.New("канал не настроен как источник starboard")
)

// Ошибки статистики сообщений
var (
	// ErrEmptyIgnoreList — не передано ни одного канала или участника
	ErrEmptyIgnoreList = errors.New("не указаны ни каналы, ни участники")
	// ErrNoMessagesConfig — настройки статистики сообщений для сервера не созданы
	ErrNoMessagesConfig = errors.New("настройки статистики сообщений не найдены")
)
