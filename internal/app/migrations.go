package app

import "github.com/strawberry-py/strawberry-boards/internal/db/postgres"

// migrations применяются по порядку при каждом старте, уже применённые пропускаются.
var migrations = []postgres.Migration{
	{Version: 1, SQL: migration001Karma},
	{Version: 2, SQL: migration002Starboard},
	{Version: 3, SQL: migration003Points},
	{Version: 4, SQL: migration004Messages},
}

const migration001Karma = `
CREATE TABLE IF NOT EXISTS boards_karma_members (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    value BIGINT NOT NULL DEFAULT 0,
    given BIGINT NOT NULL DEFAULT 0,
    taken BIGINT NOT NULL DEFAULT 0,
    UNIQUE (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_karma_members_value ON boards_karma_members(guild_id, value DESC);

CREATE TABLE IF NOT EXISTS boards_karma_discord_emojis (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    emoji_id BIGINT NOT NULL,
    name VARCHAR(255) NOT NULL DEFAULT '',
    value INTEGER NOT NULL DEFAULT 0,
    UNIQUE (guild_id, emoji_id)
);

CREATE TABLE IF NOT EXISTS boards_karma_unicode_emojis (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    emoji VARCHAR(64) NOT NULL,
    value INTEGER NOT NULL DEFAULT 0,
    UNIQUE (guild_id, emoji)
);

CREATE TABLE IF NOT EXISTS boards_karma_ignored (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    channel_id BIGINT NOT NULL,
    UNIQUE (guild_id, channel_id)
);
`

const migration002Starboard = `
CREATE TABLE IF NOT EXISTS boards_starboard_channels (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    source_channel_id BIGINT NOT NULL UNIQUE,
    target_channel_id BIGINT NOT NULL,
    threshold INTEGER NOT NULL CHECK (threshold > 0),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_starboard_channels_target ON boards_starboard_channels(target_channel_id);

CREATE TABLE IF NOT EXISTS boards_starboard_messages (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    author_id BIGINT NOT NULL,
    source_channel_id BIGINT NOT NULL,
    source_message_id BIGINT NOT NULL,
    target_channel_id BIGINT NOT NULL,
    target_message_id BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (source_message_id, target_message_id)
);
CREATE INDEX IF NOT EXISTS idx_starboard_messages_target ON boards_starboard_messages(target_message_id);
CREATE INDEX IF NOT EXISTS idx_starboard_messages_author ON boards_starboard_messages(guild_id, author_id);
`

const migration003Points = `
CREATE TABLE IF NOT EXISTS boards_points_users (
    id BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    user_id BIGINT NOT NULL,
    points BIGINT NOT NULL DEFAULT 0,
    UNIQUE (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_points_users_points ON boards_points_users(guild_id, points DESC);
`

const migration004Messages = `
CREATE TABLE IF NOT EXISTS boards_messages_userchannels (
    idx BIGSERIAL PRIMARY KEY,
    guild_id BIGINT NOT NULL,
    guild_name VARCHAR(255) NOT NULL DEFAULT '',
    channel_id BIGINT NOT NULL,
    channel_name VARCHAR(255) NOT NULL DEFAULT '',
    user_id BIGINT NOT NULL,
    user_name VARCHAR(255) NOT NULL DEFAULT '',
    is_webhook BOOLEAN NOT NULL DEFAULT FALSE,
    count BIGINT NOT NULL DEFAULT 0,
    last_msg_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, channel_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_messages_userchannels_user ON boards_messages_userchannels(guild_id, user_id);

CREATE TABLE IF NOT EXISTS boards_messages_config (
    guild_id BIGINT PRIMARY KEY,
    ignored_channels BIGINT[] NOT NULL DEFAULT '{}',
    ignored_members BIGINT[] NOT NULL DEFAULT '{}'
);
`
