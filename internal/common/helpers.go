// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: работа с snowflake-идентификаторами Discord и ссылками на сообщения.
package common

import (
	"fmt"
	"strconv"
	"time"
)

// discordEpoch — начало отсчёта snowflake-идентификаторов Discord (2015-01-01, в мс).
const discordEpoch int64 = 1420070400000

// ParseID переводит строковый snowflake в int64.
// Пустая строка или мусор → 0 (так в событиях обозначается «нет значения»).
//
// Примеры:
//
//	ParseID("175928847299117063") → 175928847299117063
//	ParseID("")                   → 0
func ParseID(s string) int64 {
	if s == "" {
		return 0
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// FormatID — обратная операция к ParseID. 0 превращается в пустую строку.
func FormatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// SnowflakeTime возвращает время создания объекта по его snowflake.
func SnowflakeTime(id int64) time.Time {
	ms := (id >> 22) + discordEpoch
	return time.UnixMilli(ms).UTC()
}

// JumpURL строит ссылку на сообщение.
func JumpURL(guildID, channelID, messageID int64) string {
	return fmt.Sprintf("https://discord.com/channels/%d/%d/%d", guildID, channelID, messageID)
}

// ChannelMention возвращает упоминание канала вида <#id>.
func ChannelMention(channelID int64) string {
	return fmt.Sprintf("<#%d>", channelID)
}
