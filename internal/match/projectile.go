package match

import "time"

// Projectile is a shot in flight. Its travel is extrapolated by clients;
// the server only tracks ownership and lifetime.
type Projectile struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	OwnerTeam Team      `json:"ownerTeam"`
	Position  Vector3   `json:"position"`
	Direction Vector3   `json:"direction"`
	Damage    int       `json:"damage"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"createdAt"`

	bornAt time.Duration // match-clock time of creation
}

// expired reports whether the projectile outlived lifetime at match-clock now.
func (p *Projectile) expired(now, lifetime time.Duration) bool {
	return now-p.bornAt > lifetime
}

func teamColor(t Team) string {
	if t == TeamBlue {
		return BlueProjectileColor
	}
	return RedProjectileColor
}
