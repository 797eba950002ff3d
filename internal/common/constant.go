package common

// BearerScheme is the Authorization header scheme used for access tokens.
const BearerScheme = "Bearer"

// TokenTypeBearer is the token_type value returned next to issued tokens.
const TokenTypeBearer = "bearer"
